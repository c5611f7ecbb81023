package main

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
}

type StartFlags struct {
	Clean        bool
	NoAutoUpdate bool
}

type StopFlags struct {
	Warn       bool
	SaveWorld  bool
	Foreground bool
}

type RestartFlags struct {
	Warn         bool
	SaveWorld    bool
	NoAutoUpdate bool
	Foreground   bool
}

type UpdateFlags struct {
	Force       bool
	NoAutoStart bool
	SaveWorld   bool
	Warn        bool
	Foreground  bool
}

type BackupFlags struct {
	CompressionLevel int
}

type RestoreFlags struct {
	Latest bool
	Path   string
}

type StatusFlags struct {
	Full bool
}

// RCONFlags override the address the console connects to. Port 0 keeps the
// configured RCON port.
type RCONFlags struct {
	IP   string
	Port int
}

type EOSCredentialsFlags struct {
	ClientID     string
	ClientSecret string
	DeploymentID string
}
