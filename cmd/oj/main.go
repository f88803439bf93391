// Command oj is a thin smoke-test client for the daemon's control
// socket. The full CLI front-end and terminal rendering are out of
// scope (spec.md §1); this binary only proves the listener is reachable
// end to end, the same role the teacher's cmd/kandev-cli stub plays
// before the real CLI is layered on top.
package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/oddjobs/oj/pkg/ojproto"
)

func main() {
	stateDir := flag.String("state-dir", defaultStateDir(), "daemon state directory")
	action := flag.String("action", "job.list", "ojproto action to send")
	flag.Parse()

	if err := run(*stateDir, *action); err != nil {
		fmt.Fprintln(os.Stderr, "oj:", err)
		os.Exit(1)
	}
}

func defaultStateDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, ".local", "state", "oj")
}

func run(stateDir, action string) error {
	sockPath := filepath.Join(stateDir, "daemon.sock")
	conn, err := net.DialTimeout("unix", sockPath, 5*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", sockPath, err)
	}
	defer conn.Close()

	req, err := ojproto.NewRequest(uuid.NewString(), action, json.RawMessage("{}"))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if err := writeFrame(conn, req); err != nil {
		return err
	}

	resp, err := readFrame(bufio.NewReader(conn))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func writeFrame(w net.Conn, msg *ojproto.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func readFrame(r *bufio.Reader) (*ojproto.Message, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if _, err := readFull(r, buf); err != nil {
		return nil, err
	}
	var msg ojproto.Message
	if err := json.Unmarshal(buf, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
