package push

import (
	"encoding/json"
	"os"
	"path/filepath"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/rchat/internal/logger"
)

// VAPIDKeys — пара ключей для Web Push (VAPID).
type VAPIDKeys struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

const defaultKeysFile = "config/vapid.json"

// EnsureVAPIDKeys returns the VAPID key pair, generating and persisting one
// on first run. Path resolution: explicit arg, then VAPID_KEYS_FILE env,
// then config/vapid.json relative to cwd.
func EnsureVAPIDKeys(path string) (*VAPIDKeys, error) {
	if path == "" {
		path = os.Getenv("VAPID_KEYS_FILE")
	}
	if path == "" {
		path = defaultKeysFile
	}

	if data, err := os.ReadFile(path); err == nil {
		var keys VAPIDKeys
		if json.Unmarshal(data, &keys) == nil && keys.PublicKey != "" && keys.PrivateKey != "" {
			return &keys, nil
		}
	}

	pub, priv, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return nil, err
	}
	keys := &VAPIDKeys{PublicKey: pub, PrivateKey: priv}
	if err := persist(path, keys); err != nil {
		// Ключи всё равно рабочие, просто не переживут перезапуск.
		logger.Errorf("push: save VAPID keys to %s: %v", path, err)
		return keys, nil
	}
	logger.Infof("push: VAPID keys generated and saved to %s", path)
	return keys, nil
}

func persist(path string, keys *VAPIDKeys) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
