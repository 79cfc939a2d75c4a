package app

// Key bindings available whatever has focus.
const (
	KeyCtrlC         = "ctrl+c"
	KeyTab           = "tab"
	KeyEsc           = "esc"
	KeySubmit        = "ctrl+s"
	KeyEmergency     = "ctrl+x"
	KeyTranscript    = "ctrl+t"
	KeyUseTranscript = "ctrl+u"
	KeyClearAnswer   = "ctrl+l"
)

// Key bindings handled while the timeline has focus.
const (
	KeyQuit            = "q"
	KeyStart           = "s"
	KeyPause           = "p"
	KeyCamera          = "c"
	KeyFinish          = "f"
	KeyExport          = "e"
	KeyClearTranscript = "x"
	KeyReset           = "r"
	KeyUp              = "up"
	KeyDown            = "down"
	KeyJ               = "j"
	KeyK               = "k"
	KeyYes             = "y"
)
