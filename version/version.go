package version

var (
	Version    = "2.1"
	GitHash    = "devXXXX"
	BuildTS    = "2024-01-01T00:00:00Z" // to be replaced at build time
	APIVersion = "1.0"
	Agent      = "pwmfan/" + Version
	Branch     = "main"
)

type VersionConfig struct {
	Version    string `json:"Version"`
	GitHash    string `json:"GitHash"`
	BuildTS    string `json:"BuildTS"`
	APIVersion string `json:"APIVersion"`
	Agent      string `json:"Agent"`
	Branch     string `json:"Branch"`
}

func GetVersionConfig() VersionConfig {
	return VersionConfig{
		Version:    Version,
		GitHash:    GitHash,
		BuildTS:    BuildTS,
		APIVersion: APIVersion,
		Agent:      Agent,
		Branch:     Branch,
	}
}
