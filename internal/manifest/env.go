package manifest

import (
	"os"
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// reservedPrefixes cannot be set in a Functions .env file.
var reservedPrefixes = []string{"FIREBASE_", "X_GOOGLE_", "EXT_"}

// EnvFile renders functions/.env: the entries of srcPath that mention neither
// EMULATOR nor localhost and are not reserved, overlaid with overrides.
// The dropped keys are returned sorted.
func EnvFile(srcPath string, overrides map[string]string) ([]byte, []string, error) {
	vars := map[string]string{}
	var dropped []string

	if srcPath != "" {
		src, err := godotenv.Read(srcPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, nil, errors.Wrapf(err, "read %s", srcPath)
		}
		for k, v := range src {
			if localOnly(k, v) || reserved(k) {
				dropped = append(dropped, k)
				continue
			}
			vars[k] = v
		}
	}

	for k, v := range overrides {
		vars[k] = v
	}

	sort.Strings(dropped)
	if len(vars) == 0 {
		return []byte{}, dropped, nil
	}

	out, err := godotenv.Marshal(vars)
	if err != nil {
		return nil, nil, errors.Wrap(err, "render .env")
	}

	return []byte(out + "\n"), dropped, nil
}

func localOnly(k, v string) bool {
	return strings.Contains(k, "EMULATOR") || strings.Contains(v, "EMULATOR") ||
		strings.Contains(k, "localhost") || strings.Contains(v, "localhost")
}

func reserved(k string) bool {
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(k, p) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
