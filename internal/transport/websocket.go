package transport

import (
	"context"
	"fmt"
	"io"

	"github.com/coder/websocket"
)

// WSLauncher connects to a signal-cli-rest-api receive endpoint
// (ws://host/v1/receive/<account>) instead of spawning a local process.
// Each websocket message is one JSON envelope; the adapter renders them
// as a line stream so the Supervisor's consume/restart path is identical
// for both receive modes.
type WSLauncher struct {
	URL string
}

// Launch dials the receive endpoint and adapts it to a Process
func (l *WSLauncher) Launch(ctx context.Context) (Process, error) {
	conn, _, err := websocket.Dial(ctx, l.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial receive endpoint: %w", err)
	}
	conn.SetReadLimit(-1)

	pr, pw := io.Pipe()
	done := make(chan error, 1)

	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				done <- err
				pw.CloseWithError(err)
				return
			}
			if _, err := pw.Write(append(data, '\n')); err != nil {
				done <- err
				return
			}
		}
	}()

	return &wsProcess{conn: conn, stdout: pr, done: done}, nil
}

type wsProcess struct {
	conn   *websocket.Conn
	stdout io.Reader
	done   chan error
}

func (p *wsProcess) Stdout() io.Reader {
	return p.stdout
}

// Wait blocks until the socket fails or closes. Socket loss is restarted
// by the Supervisor exactly like a process exit.
func (p *wsProcess) Wait() error {
	err := <-p.done
	_ = p.conn.Close(websocket.StatusNormalClosure, "")
	return err
}
