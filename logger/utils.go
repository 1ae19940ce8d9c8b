package logger

import (
	"fmt"
	"strings"
	"time"
)

import "github.com/fatih/color"

// Level mirrors config.GatewayConfig.LogLevel's debug|info|warn|error scale,
// lowest-first so a Level comparison answers "should this print".
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func parseLevel(name string) Level {
	switch strings.ToLower(name) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Config struct {
	ShowTimestamp bool
	Level         Level
}

var LoggerConfig = Config{
	ShowTimestamp: true,
	Level:         LevelInfo,
}

// SetLevel adopts cfg.LogLevel ("debug"|"info"|"warn"|"error") as the
// minimum severity LogSuccess/LogError/LogWarn/LogInfo/LogDebug will print.
func SetLevel(levelName string) {
	LoggerConfig.Level = parseLevel(levelName)
}

// prefixLevel classifies each log-type prefix onto the Level scale so
// logWithType can gate on LoggerConfig.Level.
var prefixLevel = map[string]Level{
	"DEBUG": LevelDebug,
	"OK":    LevelInfo,
	"INFO":  LevelInfo,
	"WARN":  LevelWarn,
	"ERROR": LevelError,
}

var (
	successStyle   = color.New(color.FgGreen, color.Bold)
	errorStyle     = color.New(color.FgRed, color.Bold)
	warnStyle      = color.New(color.FgYellow, color.Bold)
	infoStyle      = color.New(color.FgCyan)
	debugStyle     = color.New(color.FgHiBlack)
	bannerStyle    = color.New(color.FgHiMagenta, color.Bold)
	messageStyle   = color.New(color.FgHiWhite)
	timestampStyle = color.New(color.FgHiBlack)
)

func printEmptyLines(count int) {
	if count <= 0 {
		return
	}
	fmt.Print(strings.Repeat("\n", count))
}

func printTimestamp() string {
	if LoggerConfig.ShowTimestamp {
		return timestampStyle.Sprintf("[%s] ", time.Now().Format("15:04:05"))
	}
	return ""
}

// Main log function
// prefix: log type (OK, ERROR, WARN, etc.)
// style: color and style
// msg: log message
// addEmptyLines: optional parameters → [0]=number of lines, [1]=line insertion position, [2]=starting space
func logWithType(prefix string, style *color.Color, msg string, addEmptyLines ...int) {
	if lvl, ok := prefixLevel[prefix]; ok && lvl < LoggerConfig.Level {
		return
	}

	n := 0        // number of blank lines
	space := 0    // leading space
	position := 1 // line insertion position (1=before, -1=after)

	if len(addEmptyLines) > 0 {
		n = addEmptyLines[0]
	}
	if len(addEmptyLines) > 1 {
		position = addEmptyLines[1]
	}

	if len(addEmptyLines) > 2 {
		space = addEmptyLines[2]
	}

	if position > 0 {
		printEmptyLines(n)
	}

	fmt.Print(strings.Repeat(" ", space))
	fmt.Print(printTimestamp())
	fmt.Print(style.Sprintf("[%s] ", prefix))
	fmt.Println(messageStyle.Sprint(msg))

	if position == -1 {
		printEmptyLines(n)
	}
}
