package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

const deployDockerignore = `.env
.git/
bin/
Dockerfile
fly.toml
`

func newDeployCommand() *cobra.Command {
	var (
		appName string
		port    int
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Generate Fly.io deployment files",
		Long:  "Generate Fly.io deployment files (Dockerfile, fly.toml, .dockerignore) for the current directory.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			if appName == "" {
				appName = filepath.Base(cwd)
			}
			return runDeploy(cmd, cwd, appName, port, force)
		},
	}

	cmd.Flags().StringVarP(&appName, "app", "a", "", "Fly.io app name (default: current directory name)")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "server port")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing deploy files")
	return cmd
}

func runDeploy(cmd *cobra.Command, dir, appName string, port int, force bool) error {
	hasStatic := false
	if info, err := os.Stat(filepath.Join(dir, "static")); err == nil && info.IsDir() {
		hasStatic = true
	}
	hasConfig := false
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err == nil {
		hasConfig = true
	}

	files := map[string]string{
		"Dockerfile":    generateDockerfile(port, hasStatic, hasConfig),
		"fly.toml":      generateFlyToml(appName, port),
		".dockerignore": deployDockerignore,
	}

	if !force {
		var existing []string
		for name := range files {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				existing = append(existing, name)
			}
		}
		if len(existing) > 0 {
			return fmt.Errorf("files already exist: %s (use --force to overwrite)", strings.Join(existing, ", "))
		}
	}

	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Generated deployment files for Fly.io:")
	fmt.Fprintln(out, "  Dockerfile")
	fmt.Fprintf(out, "  fly.toml (app: %s)\n", appName)
	fmt.Fprintln(out, "  .dockerignore")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  flyctl auth login")
	fmt.Fprintf(out, "  flyctl apps create %s\n", appName)
	fmt.Fprintln(out, "  flyctl secrets set ASSEMBLYAI_API_KEY=... ASSEMBLYAI_TTS_API_KEY=...")
	fmt.Fprintln(out, "  flyctl deploy")
	return nil
}

func generateDockerfile(port int, hasStatic, hasConfig bool) string {
	var b strings.Builder
	b.WriteString("FROM golang:1.25 AS build\n\n")
	b.WriteString("WORKDIR /src\n")
	b.WriteString("COPY go.mod go.sum ./\n")
	b.WriteString("RUN go mod download\n")
	b.WriteString("COPY . .\n")
	b.WriteString("RUN CGO_ENABLED=0 go build -o /aai-agent ./cmd/aai-agent\n\n")

	b.WriteString("FROM gcr.io/distroless/static-debian12\n\n")
	b.WriteString("WORKDIR /app\n")
	b.WriteString("COPY --from=build /aai-agent /usr/local/bin/aai-agent\n")
	if hasConfig {
		b.WriteString("COPY --from=build /src/config.yaml ./config.yaml\n")
	}
	if hasStatic {
		b.WriteString("COPY --from=build /src/static ./static\n")
	}
	fmt.Fprintf(&b, "\nEXPOSE %d\n\n", port)
	b.WriteString(`ENTRYPOINT ["aai-agent", "start", "--prod"]` + "\n")
	return b.String()
}

func generateFlyToml(appName string, port int) string {
	return fmt.Sprintf(`app = '%s'
primary_region = 'iad'

[build]

[http_service]
  internal_port = %d
  force_https = true
  auto_stop_machines = 'stop'
  auto_start_machines = true
  min_machines_running = 0

[[vm]]
  memory = '512mb'
  cpu_kind = 'shared'
  cpus = 1
`, appName, port)
}
