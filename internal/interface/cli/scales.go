package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gymstats/gymstats-hub/config"
	"github.com/gymstats/gymstats-hub/internal/domain/grade"
	"github.com/gymstats/gymstats-hub/internal/infrastructure/gradescale"
)

func scalesCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "scales [key]",
		Short: "List grade scales and the brands mapped to them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := e.printer(cmd)

			path := e.opts.ScalesFile
			if path == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				path = cfg.Stats.GradeScalesFile
			}
			registry, err := gradescale.Load(path)
			if err != nil {
				return err
			}

			keys := registry.Keys()
			if len(args) == 1 {
				if _, ok := registry.Lookup(args[0]); !ok {
					return fmt.Errorf("unknown scale %q (known: %s)", args[0], strings.Join(keys, ", "))
				}
				keys = []string{strings.ToLower(args[0])}
			}

			brandsByKey := make(map[string][]string)
			for brand, key := range registry.Brands() {
				brandsByKey[key] = append(brandsByKey[key], brand)
			}

			type scaleDTO struct {
				Key    string   `json:"key"`
				Labels []string `json:"labels"`
				Brands []string `json:"brands,omitempty"`
			}
			out := make([]scaleDTO, 0, len(keys))
			for _, k := range keys {
				s, _ := registry.Lookup(k)
				brands := brandsByKey[k]
				sort.Strings(brands)
				out = append(out, scaleDTO{Key: k, Labels: s.Canonical(), Brands: brands})
			}
			if p.json {
				return p.JSON(out)
			}

			for _, s := range out {
				title := s.Key
				if s.Key == grade.DefaultKey {
					title += " (fallback)"
				}
				p.Heading(title)
				p.Printf("  %s\n", strings.Join(s.Labels, " < "))
				if len(s.Brands) > 0 {
					p.Printf("  %s %s\n", dim("brands:"), strings.Join(s.Brands, ", "))
				}
			}
			return nil
		},
	}
}
