package config

import (
	"fmt"

	"codeberg.org/mutker/qualityctl/internal/errors"
	"codeberg.org/mutker/qualityctl/internal/logger"
	"codeberg.org/mutker/qualityctl/internal/quality"
	"github.com/BurntSushi/toml"
)

type tierFile struct {
	Tiers []quality.Tier `toml:"tier"`
}

// LoadTiers decodes the [[tier]] tables of a tier file. Every tier needs a
// unique, non-empty name; keys the decoder does not know are logged.
func LoadTiers(path string) ([]quality.Tier, error) {
	errFactory := errors.New()

	var f tierFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrReadTiers, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		logger.Warn().Strs("keys", keys).Str("path", path).Msg("Ignoring unknown keys in tier file")
	}

	if len(f.Tiers) == 0 {
		return nil, errFactory.WithMessage(errors.ErrReadTiers, "no [[tier]] tables in "+path)
	}

	seen := make(map[string]bool, len(f.Tiers))
	for i, t := range f.Tiers {
		if t.Name == "" {
			return nil, errFactory.WithMessage(errors.ErrReadTiers, fmt.Sprintf("tier #%d has no name", i+1))
		}
		if seen[t.Name] {
			return nil, errFactory.WithMessage(errors.ErrReadTiers, fmt.Sprintf("tier %q defined twice", t.Name))
		}
		seen[t.Name] = true
	}

	return f.Tiers, nil
}
