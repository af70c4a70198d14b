package config

import (
	"os"
	"text/template"
)

const XEyesConfigTemplate = `db_host = "{{ .DbHost }}"
db_port = {{ .DbPort }}
db_username = "{{ .DbUsername }}"
db_password = "{{ .DbPassword }}"
db_schema = "{{ .DbSchema }}"
in_memory = {{ .InMemory }}

server_port = {{ .ServerPort }}
max_concurrent_tracks = {{ .MaxConcurrentTracks }}
result_cache_size = {{ .ResultCacheSize }}

[source]
chain = "{{ .Source.Chain }}"
chain_id = {{ .Source.ChainId }}
rpcs = [{{ range $i, $rpc := .Source.Rpcs }}{{ if $i }}, {{ end }}"{{ $rpc }}"{{ end }}]
confirmations = {{ .Source.Confirmations }}
rpc_rate_limit = {{ printf "%.2f" .Source.RpcRateLimit }}
rpc_burst = {{ .Source.RpcBurst }}

[destination]
chain = "{{ .Destination.Chain }}"
chain_id = {{ .Destination.ChainId }}
rpcs = [{{ range $i, $rpc := .Destination.Rpcs }}{{ if $i }}, {{ end }}"{{ $rpc }}"{{ end }}]
confirmations = {{ .Destination.Confirmations }}
rpc_rate_limit = {{ printf "%.2f" .Destination.RpcRateLimit }}
rpc_burst = {{ .Destination.RpcBurst }}

[tracker]
deposit_contract = "{{ .Tracker.DepositContract }}"
min_poll_interval_ms = {{ .Tracker.MinPollIntervalMs }}
max_poll_interval_ms = {{ .Tracker.MaxPollIntervalMs }}
rpc_timeout_ms = {{ .Tracker.RpcTimeoutMs }}
source_timeout_ms = {{ .Tracker.SourceTimeoutMs }}
destination_timeout_ms = {{ .Tracker.DestinationTimeoutMs }}
`

// LocalDevnet mirrors the ports of a local L1 (8545) and L2 (9545) pair.
func LocalDevnet() *XEyes {
	cfg := &XEyes{
		InMemory: true,
		Source: Chain{
			Chain:   "l1",
			ChainId: 900,
			Rpcs:    []string{"http://localhost:8545"},
		},
		Destination: Chain{
			Chain:   "l2",
			ChainId: 901,
			Rpcs:    []string{"http://localhost:9545"},
		},
	}
	cfg.SetDefaults()

	return cfg
}

func WriteConfigFile(path string, cfg *XEyes) error {
	tmpl, err := template.New("xeyesConfig").Parse(XEyesConfigTemplate)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return tmpl.Execute(f, cfg)
}
