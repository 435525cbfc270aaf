package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "relay":
		return relayTemplate, nil
	case "fakecam":
		return fakecamTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const relayTemplate = `name = "lvrelay"
addr = ":9200"
target = "http://192.168.122.1:8080/liveview/liveviewstream"
request_timeout = "5s"
read_buffer_size = 8192
cors_origins = ["http://localhost:3000"]

[nats]
url = ""
subject_prefix = "liveview.lvrelay"
publish_images = false
`

const fakecamTemplate = `addr = ":8080"
path = "/liveview/liveviewstream"
width = 640
height = 480
fps = 30
focus_every = 15
playback = false
unknown_every = 0
padding = 8
`
