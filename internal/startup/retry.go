// Package startup — подключение внешних зависимостей с повторами, чтобы
// рестарт контейнера БД не ронял API.
package startup

import (
	"os"
	"time"

	"github.com/rchat/internal/logger"
)

const (
	initialPause = 2 * time.Second
	maxPause     = 30 * time.Second
)

// connectWithRetry повторяет attempt с экспоненциальной паузой, пока не
// выйдет maxWait. Исчерпание бюджета фатально.
func connectWithRetry(name string, maxWait time.Duration, attempt func() error) {
	deadline := time.Now().Add(maxWait)
	pause := initialPause
	for {
		err := attempt()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			logger.Errorf("%s: giving up after %v: %v", name, maxWait, err)
			os.Exit(1)
		}
		logger.Errorf("%s: %v, retry in %v", name, err, pause)
		time.Sleep(pause)
		if pause < maxPause {
			pause *= 2
		}
	}
}
