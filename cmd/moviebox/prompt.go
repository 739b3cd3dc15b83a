package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

type prompter struct {
	reader *bufio.Reader
	out    io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{reader: bufio.NewReader(in), out: out}
}

// ask imprime el prompt y devuelve la linea sin el salto final.
func (p *prompter) ask(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("leer input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *prompter) confirm(label string) bool {
	answer, err := p.ask(label + " [y/N]: ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
