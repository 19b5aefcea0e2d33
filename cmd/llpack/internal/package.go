package internal

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var packageOutput string

var packageCmd = &cobra.Command{
	Use:   "package [dir]",
	Short: "Run the package pass over the installed project",
	Long: `Package lays out the project's distributable bundle from its install tree.
Nodes whose configuration is already installed are not rebuilt.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPackage,
}

func init() {
	packageCmd.Flags().StringVarP(&packageOutput, "output", "o", "", "Also write the bundle to a directory or a .zip file")
	rootCmd.AddCommand(packageCmd)
}

func runPackage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pl, err := loadPlan(ctx, projectDir(args))
	if err != nil {
		return err
	}
	if err := runBuild(cmd, pl); err != nil {
		return err
	}
	if _, err := assembler(pl).Package(ctx, pl.Graph); err != nil {
		return err
	}
	if packageOutput == "" {
		return nil
	}
	if err := outputResult(packageDir(pl), packageOutput); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	log.FromContext(ctx).Info("wrote bundle", "output", packageOutput)
	return nil
}

// outputResult writes the bundle in srcDir to dest.
// If dest ends with ".zip", creates a zip archive; otherwise copies the directory.
func outputResult(srcDir, dest string) error {
	if strings.HasSuffix(dest, ".zip") {
		return zipDir(srcDir, dest)
	}
	return os.CopyFS(dest, os.DirFS(srcDir))
}

// zipDir creates a zip archive at dest from the contents of srcDir.
func zipDir(srcDir, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	w := zip.NewWriter(f)
	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		writer, err := w.CreateHeader(header)
		if err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(writer, file)
		return err
	})
	if err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
