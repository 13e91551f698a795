// Package logger — асинхронный лог сервиса. Записи уходят в буферизованный
// канал, фоновая горутина пишет их в stdlib log; обработчики соединений
// никогда не блокируются на I/O лога.
package logger

import (
	"fmt"
	"log"
	"os"
	"time"
)

type level int

const (
	levelDebug level = iota
	levelInfo
)

const (
	queueSize = 8192
	// Порог для LogDuration на уровне info: медленные вызовы видны всегда.
	slowCall = 100 * time.Millisecond
)

type sink struct {
	queue  chan string
	level  level
	prefix string
}

var std = start()

func start() *sink {
	s := &sink{queue: make(chan string, queueSize), level: levelFromEnv()}
	go func() {
		for line := range s.queue {
			log.Print(line)
		}
	}()
	return s
}

func levelFromEnv() level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "trace":
		return levelDebug
	}
	return levelInfo
}

// put никогда не блокирует: при переполненном буфере запись теряется.
func (s *sink) put(line string) {
	select {
	case s.queue <- line:
	default:
	}
}

func (s *sink) line(body string) string {
	if s.prefix == "" {
		return body
	}
	return "[" + s.prefix + "] " + body
}

// SetPrefix задаёт префикс сервиса ("api"). Вызывается один раз при старте.
func SetPrefix(p string) {
	std.prefix = p
}

func Info(v ...any) {
	std.put(std.line(fmt.Sprint(v...)))
}

func Infof(format string, v ...any) {
	std.put(std.line(fmt.Sprintf(format, v...)))
}

// Debugf пишет только при LOG_LEVEL=debug.
func Debugf(format string, v ...any) {
	if std.level > levelDebug {
		return
	}
	std.put(std.line(fmt.Sprintf(format, v...)))
}

func Error(v ...any) {
	std.put(std.line("ERROR: " + fmt.Sprint(v...)))
}

func Errorf(format string, v ...any) {
	std.put(std.line("ERROR: " + fmt.Sprintf(format, v...)))
}

// LogDuration пишет имя вызова и длительность в миллисекундах. На уровне
// info логируются только вызовы дольше slowCall, на debug — все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if std.level > levelDebug && elapsed < slowCall {
		return
	}
	std.put(std.line(fmt.Sprintf("fn=%s duration_ms=%d", fn, elapsed.Milliseconds())))
}

// DeferLogDuration — для defer: defer logger.DeferLogDuration("chat.Create", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
