package main

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// programIDs renvoie les ids passés en argument ou, à défaut, ceux lus sur
// stdin quand elle n'est pas un terminal (`ruv-dl search --only-ids x | ruv-dl download`).
func programIDs(args []string, stdin io.Reader) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if stdin == nil {
		return nil, nil
	}
	if f, ok := stdin.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return nil, nil
	}
	var ids []string
	sc := bufio.NewScanner(stdin)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, sc.Err()
}
