package main

import (
	"flag"
	"log"

	"github.com/danmuck/lvstream/internal/config"
)

func main() {
	kind := flag.String("kind", "relay", "config kind: relay|fakecam")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		switch *kind {
		case "relay":
			if _, err := config.LoadRelayConfig(path); err != nil {
				log.Fatal(err)
			}
		case "fakecam":
			if _, err := config.LoadFakecamConfig(path); err != nil {
				log.Fatal(err)
			}
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}

func defaultPath(kind string) string {
	switch kind {
	case "relay":
		return "cmd/lvrelay/config.toml"
	case "fakecam":
		return "cmd/fakecam/config.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}
