package main

import (
	"flag"
	"log"

	"github.com/danmuck/acctos/internal/config"
)

const defaultPath = "cmd/acctosctl/config.toml"

func main() {
	kind := flag.String("kind", "memory", "config kind: memory|sqlite")
	output := flag.String("output", defaultPath, "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", defaultPath, "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.Load(*input)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated config at %s (chain=%s storage=%s)", *input, cfg.Chain.ID, cfg.Storage.Driver)
		return
	}

	if err := config.WriteTemplate(*output, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, *output)
}
