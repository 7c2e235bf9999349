package chat

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log writes a channel's chat transcript to a rotated file. Each recording
// session is stamped with its own id so overlapping sessions in one file can
// be told apart.
type Log struct {
	mu        sync.Mutex
	out       *lumberjack.Logger
	sessionID string
}

// NewLog opens a transcript for a channel under dir and writes the session
// header.
func NewLog(dir, platform, channel string) *Log {
	l := &Log{
		out: &lumberjack.Logger{
			Filename:   filepath.Join(dir, fmt.Sprintf("%s-%s.log", platform, channel)),
			MaxSize:    25, // megabytes
			MaxBackups: 10,
			Compress:   true,
		},
		sessionID: uuid.NewString(),
	}
	l.write(fmt.Sprintf("--- session %s: recording %s/%s ---", l.sessionID, platform, channel))
	return l
}

// Record appends one message to the transcript.
func (l *Log) Record(msg Message) {
	l.write(fmt.Sprintf("[%s] %s: %s", msg.Time.Format("15:04:05"), msg.Sender, msg.Text))
}

// Close ends the session and releases the file.
func (l *Log) Close() error {
	l.write(fmt.Sprintf("--- session %s: closed ---", l.sessionID))
	return l.out.Close()
}

func (l *Log) write(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.out.Write([]byte(line + "\n")); err != nil {
		log.Warnf("chat: transcript write failed: %v", err)
	}
}
