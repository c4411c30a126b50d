// Command aai-agent is the voice assistant CLI: scaffold a project, start
// the server, generate deployment files, or index the knowledge base.
package main

import (
	"os"

	"github.com/alexkroman/aai-agent/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
