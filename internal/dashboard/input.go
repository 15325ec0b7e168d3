package dashboard

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/luifiio/bp4w-maq/internal/api"
	"github.com/luifiio/bp4w-maq/internal/model"
)

// ErrQuit is returned by ParseInput for the quit command.
var ErrQuit = errors.New("quit")

// ParseInput parses one interactive line such as "log track day". Blank
// lines return an empty command and no error.
func ParseInput(line string) (model.Command, api.Params, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", api.Params{}, nil
	}
	word := strings.ToLower(fields[0])
	if word == "quit" || word == "exit" || word == "q" {
		return "", api.Params{}, ErrQuit
	}
	cmd, ok := model.ParseCommand(word)
	if !ok {
		return "", api.Params{}, fmt.Errorf("unknown command %q (connect, disconnect, start, stop, log [name], unlog, quit)", fields[0])
	}
	var params api.Params
	if cmd == model.CommandLoggingStart && len(fields) > 1 {
		params.SessionName = strings.Join(fields[1:], " ")
	}
	return cmd, params, nil
}

// ReadCommands submits commands read line by line from r until EOF, quit or
// ctx is done. Parse errors are reported through onError and skipped.
func (d *Dashboard) ReadCommands(ctx context.Context, r io.Reader, onError func(error)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd, params, err := ParseInput(scanner.Text())
		if errors.Is(err, ErrQuit) {
			return ErrQuit
		}
		if err != nil {
			if onError != nil {
				onError(err)
			}
			continue
		}
		if cmd == "" {
			continue
		}
		if err := d.Submit(ctx, cmd, params); err != nil {
			return err
		}
	}
	return scanner.Err()
}
