// Package config loads and validates imgharvest configuration.
//
// Sources are layered with the following precedence, highest first:
//
//	command line flags > IMGHARVEST_* environment > .env files > config file > defaults
//
// The config file is YAML unless its extension is .toml. Durations are
// written as Go duration strings ("2s", "500ms").
//
// Typical use:
//
//	flags := map[string]interface{}{
//	    "target":     200,
//	    "output":     "./dataset",
//	    "categories": map[string]string{"polar_bear": "polar bear"},
//	}
//	cfg, err := config.Load("", flags)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, cat := range cfg.CategoryList() {
//	    fmt.Println(cat.Name, cat.Query)
//	}
package config
