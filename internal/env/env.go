package env

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load copies variables from dotenv files into the process environment.
// Variables already set in the environment win over file values, and earlier
// files win over later ones. Missing files are skipped.
func Load(paths ...string) error {
	pre := map[string]struct{}{}
	for _, e := range os.Environ() {
		if i := strings.IndexByte(e, '='); i > 0 {
			pre[e[:i]] = struct{}{}
		}
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		v := viper.New()
		v.SetConfigFile(p)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		for _, k := range v.AllKeys() {
			name := strings.ToUpper(k)
			if _, ok := pre[name]; ok {
				continue
			}
			pre[name] = struct{}{}
			_ = os.Setenv(name, v.GetString(k))
		}
	}
	return nil
}
