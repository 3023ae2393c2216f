package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// prompter asks for missing values on the terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok {
		p.fd = int(f.Fd())
		p.tty = term.IsTerminal(p.fd)
	}
	return p
}

func (p *prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Handle asks for the account handle.
func (p *prompter) Handle() (string, error) {
	fmt.Fprint(p.out, "Bluesky handle (e.g. alice.bsky.social): ")
	return p.readLine()
}

// Password asks for the App Password without echoing it when the input is a
// terminal.
func (p *prompter) Password() (string, error) {
	fmt.Fprint(p.out, "App Password: ")
	if !p.tty {
		return p.readLine()
	}
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Limit asks for the post cap. An empty answer means no cap.
func (p *prompter) Limit() (int, error) {
	for {
		fmt.Fprint(p.out, "How many posts to analyze? (blank for all): ")
		answer, err := p.readLine()
		if err != nil {
			return 0, err
		}
		if answer == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(answer)
		if err == nil && n >= 0 {
			return n, nil
		}
		fmt.Fprintln(p.out, "Please enter a whole number.")
	}
}
