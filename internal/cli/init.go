package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

const scaffoldConfig = `# aai-agent configuration. Environment variables overlay these values;
# see .env.example for the credentials.

server:
  port: 8000
  static_dir: static
  log_level: info

stt:
  sample_rate: 16000
  # keywords listed here are phonetically corrected in final transcripts:
  # keywords: [AssemblyAI, pgvector]

tts:
  voice: luna

agent:
  # greeting: Hi! Ask me anything.
  max_steps: 3

session:
  ttl_seconds: 3600

tools:
  - get_weather
  - visit_url

# knowledge:
#   postgres_dsn: postgres://localhost/aai_agent
`

const scaffoldEnv = `ASSEMBLYAI_API_KEY=
# ASSEMBLYAI_TTS_API_KEY=
# OPENAI_API_KEY=
# DATABASE_URL=
# VOICE=luna
`

const scaffoldIndexHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>Voice Assistant</title>
</head>
<body>
  <h1>Voice Assistant</h1>
  <button id="talk">Start talking</button>
  <pre id="log"></pre>
  <script>
    const log = (line) => {
      document.getElementById("log").textContent += line + "\n";
    };
    document.getElementById("talk").addEventListener("click", async () => {
      const proto = location.protocol === "https:" ? "wss:" : "ws:";
      const ws = new WebSocket(proto + "//" + location.host + "/ws");
      ws.binaryType = "arraybuffer";
      ws.onmessage = (ev) => {
        if (typeof ev.data === "string") {
          const frame = JSON.parse(ev.data);
          log(frame.type + (frame.text ? ": " + frame.text : ""));
        }
      };
      const media = await navigator.mediaDevices.getUserMedia({ audio: true });
      const ctx = new AudioContext({ sampleRate: 16000 });
      const source = ctx.createMediaStreamSource(media);
      const proc = ctx.createScriptProcessor(4096, 1, 1);
      proc.onaudioprocess = (ev) => {
        if (ws.readyState !== WebSocket.OPEN) return;
        const f32 = ev.inputBuffer.getChannelData(0);
        const i16 = new Int16Array(f32.length);
        for (let i = 0; i < f32.length; i++) {
          i16[i] = Math.max(-1, Math.min(1, f32[i])) * 0x7fff;
        }
        ws.send(i16.buffer);
      };
      source.connect(proc);
      proc.connect(ctx.destination);
    });
  </script>
</body>
</html>
`

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Scaffold a new voice assistant project",
		Long: `Scaffold a new voice assistant project: a config file, a .env template,
and a minimal static frontend. Defaults to the current directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "."
			if len(args) == 1 {
				target = args[0]
			}
			return runInit(cmd, target, force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing files")
	return cmd
}

func runInit(cmd *cobra.Command, target string, force bool) error {
	files := map[string]string{
		"config.yaml":       scaffoldConfig,
		".env.example":      scaffoldEnv,
		"static/index.html": scaffoldIndexHTML,
	}

	if !force {
		var existing []string
		for name := range files {
			if _, err := os.Stat(filepath.Join(target, name)); err == nil {
				existing = append(existing, name)
			}
		}
		if len(existing) > 0 {
			return fmt.Errorf("files already exist: %s (use --force to overwrite)", strings.Join(existing, ", "))
		}
	}

	for name, content := range files {
		path := filepath.Join(target, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initialized voice assistant project in %s\n\n", target)
	fmt.Fprintln(out, "Next steps:")
	if target != "." {
		fmt.Fprintf(out, "  cd %s\n", target)
	}
	fmt.Fprintln(out, "  cp .env.example .env   # add your API keys")
	fmt.Fprintln(out, "  aai-agent start")
	return nil
}
