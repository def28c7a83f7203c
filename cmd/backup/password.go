// Password entry: loop until a non-blank password is entered, with an
// optional confirmation prompt for backup and none for extract. The
// password is read without echo via golang.org/x/crypto/ssh/terminal
// when stdin is a TTY, falling back to a cleartext line scanner
// otherwise (piped input, CI, etc.).
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh/terminal"
)

// readPasswordLine reads one line of password input, without echo if
// stdin is a terminal.
func readPasswordLine(prompt string) (string, error) {
	fmt.Fprint(os.Stdout, prompt)

	if terminal.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := terminal.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stdout)
		if err != nil {
			return "", fmt.Errorf("reading password from terminal: %w", err)
		}
		return string(raw), nil
	}

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading password from stdin: %w", err)
		}
		return "", errors.New("no password provided")
	}
	return scanner.Text(), nil
}

// getPassword returns the supplied password as-is, or prompts for one
// (with confirmation, and length validation, when requested) if none was
// supplied on the command line.
func getPassword(supplied string, confirm, validate bool) (string, error) {
	if supplied != "" {
		return supplied, nil
	}

	for {
		pw, err := readPasswordLine("Backup password: ")
		if err != nil {
			return "", err
		}

		if confirm {
			pwConfirm, err := readPasswordLine("Confirm password: ")
			if err != nil {
				return "", err
			}
			if pw != pwConfirm {
				fmt.Fprintln(os.Stderr, "Passwords do not match")
				continue
			}
		}

		if validate {
			if err := validatePassword(pw); err != nil {
				fmt.Fprintln(os.Stderr, err.Error())
				continue
			}
		}

		if strings.TrimSpace(pw) == "" {
			fmt.Fprintln(os.Stdout, "Password cannot be empty or blank")
			continue
		}

		return pw, nil
	}
}
