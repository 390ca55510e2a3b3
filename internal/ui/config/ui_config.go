package ui_config

type Config struct {
	// Start is initial navigate request, e.g. "app=satellite"
	Start string `hcl:"start"`
	// Params are default widget parameters, navigate request params win
	Params   map[string]string `hcl:"params"`
	IdleText string            `hcl:"idle_text"`
	IdleQR   string            `hcl:"idle_qr"`
	// ReloadExec=false makes reload only remount current widget
	ReloadExec bool `hcl:"reload_exec"`

	MsgError   string `hcl:"msg_error"`
	MsgMissing string `hcl:"msg_missing"` // %s = widget name
	ErrorSec   int    `hcl:"error_sec"`
}
