package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/config"
)

const settingsTemplate = `# quicksetup settings. Flags and QUICKSETUP_* environment variables override these.
region: us-east-1
parallelism: 1
continue_on_error: false
refresh: true
log_level: info

backend:
  type: local
  path: .quicksetup/state.json
  # type: s3
  # bucket: my-state-bucket
  # key: quicksetup/terraform.tfstate
  # dynamodb_table: quicksetup-locks
  # encrypt: true
`

const declarationsTemplate = `# Declarations for an in-place CodeDeploy deployment.
# Reference another resource's output with "ptr://<type>/<name>/<attr>".
# See examples/inplace/main.yaml for the complete stack.

variables:
  name:
    type: string
    default: quicksetup

resources:
  - type: null_resource
    name: hello
    provider: "null"
    properties:
      triggers:
        greeting: "hello from ${var.name}"

outputs:
  helloId: ptr://null_resource/hello/id
`

func newInitCmd(*globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Initialize a new quicksetup project",
		Long:  `Creates a settings file and a starter declaration set in dir (default: the working directory).`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}

			w := cmd.OutOrStdout()
			files := []struct{ name, content string }{
				{config.FileName + ".yaml", settingsTemplate},
				{"main.yaml", declarationsTemplate},
			}
			for _, f := range files {
				path := filepath.Join(dir, f.name)
				created, err := writeIfMissing(path, f.content)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(w, "Created %s\n", path)
				} else {
					fmt.Fprintf(w, "Kept existing %s\n", path)
				}
			}

			fmt.Fprintln(w, "\nquicksetup initialized successfully!")
			fmt.Fprintln(w, "Next steps:")
			fmt.Fprintln(w, "  1. Edit main.yaml to declare your infrastructure")
			fmt.Fprintln(w, "  2. Run 'quicksetup plan' to see what will be created")
			fmt.Fprintln(w, "  3. Run 'quicksetup apply' to create it")
			return nil
		},
	}
}

func writeIfMissing(path, content string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return true, nil
}
