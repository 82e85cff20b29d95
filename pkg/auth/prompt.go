package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the operator for login details
type Prompter struct {
	in  io.Reader
	out io.Writer
	// readSecret reads a line without echo; it falls back to a plain read
	readSecret func() (string, error)
	reader     *bufio.Reader
}

// NewTerminalPrompter reads from stdin, hiding the password when stdin is a terminal
func NewTerminalPrompter() *Prompter {
	p := NewPrompter(os.Stdin, os.Stdout)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		p.readSecret = func() (string, error) {
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(p.out)
			return string(b), err
		}
	}
	return p
}

// NewPrompter reads answers from in and writes questions to out
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{in: in, out: out, reader: bufio.NewReader(in)}
	p.readSecret = p.readLine
	return p
}

// Login asks for a username (offering def) and a password
func (p *Prompter) Login(def string) (*Account, error) {
	if def != "" {
		fmt.Fprintf(p.out, "Instagram username [%s]: ", def)
	} else {
		fmt.Fprint(p.out, "Instagram username: ")
	}
	user, err := p.readLine()
	if err != nil {
		return nil, err
	}
	if user == "" {
		user = def
	}
	if user == "" {
		return nil, errors.New("username is required")
	}

	fmt.Fprint(p.out, "Instagram password: ")
	pass, err := p.readSecret()
	if err != nil {
		return nil, err
	}
	if pass == "" {
		return nil, errors.New("password is required")
	}

	return &Account{Username: user, Password: pass}, nil
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
