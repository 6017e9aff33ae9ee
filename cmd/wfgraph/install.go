package main

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
)

const mermaidASCIIVersion = "1.1.0"

// mermaidASCIIBaseURL is the release download root. Tests point it at a
// local server.
var mermaidASCIIBaseURL = "https://github.com/AlexanderGrooff/mermaid-ascii/releases/download"

// SHA-256 checksums for mermaid-ascii v1.1.0 release assets.
var mermaidASCIIChecksums = map[string]string{
	"mermaid-ascii_Darwin_arm64.tar.gz":  "068d2ff869d4921655cab471500fffd8c3ed28155b100518ed3cf3835d53d3d0",
	"mermaid-ascii_Darwin_x86_64.tar.gz": "0cd4c9c01a03284fe866f39a1ce1aaee1e6a2fbd91deedc4ec254cb87622eec8",
	"mermaid-ascii_Linux_arm64.tar.gz":   "3b7d0a95141bfbca838e445ea802ffb7fba8873b3c4af498482c84f83526f2db",
	"mermaid-ascii_Linux_x86_64.tar.gz":  "838ea93d561b3bc83aa15531c6ed7d2d261a8edc521d5484f7e91fe831cc4c65",
}

// httpGetter is satisfied by *http.Client.
type httpGetter interface {
	Get(url string) (*http.Response, error)
}

func (a *app) installCmd() *cobra.Command {
	var skipTools bool

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Write settings.json and install the mermaid-ascii renderer",
		Long: `Persist the effective configuration (defaults, environment and flags) to
~/.wfgraph/settings.json and download mermaid-ascii into ~/.wfgraph/bin.
A failed download is not fatal: ASCII diagrams fall back to the built-in
renderer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			path, err := writeSettings(a.cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Config written to %s\n", path)

			if skipTools {
				return nil
			}
			client := &http.Client{Timeout: 60 * time.Second}
			dest, err := installMermaidASCII(binDir(), client)
			if err != nil {
				a.logger.Warn("mermaid-ascii not installed; ASCII diagrams will use the built-in renderer", "error", err)
				return nil
			}
			fmt.Fprintf(out, "mermaid-ascii available at %s\n", dest)
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&skipTools, "skip-tools", false, "only write settings.json")
	// install persists serve settings too.
	f.String("listen-addr", "", "TCP listen address")
	f.String("retention", "", "execution retention, e.g. 720h")
	f.String("maintenance-cron", "", "cron expression for maintenance")
	return cmd
}

// writeSettings persists cfg to settings.json and returns its path.
func writeSettings(cfg Config) (string, error) {
	if err := os.MkdirAll(wfgraphDir(), 0o700); err != nil {
		return "", fmt.Errorf("create %s: %w", wfgraphDir(), err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", err
	}
	path := settingsPath()
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// installMermaidASCII downloads, verifies and extracts the mermaid-ascii
// binary into dir. An existing binary is kept.
func installMermaidASCII(dir string, client httpGetter) (string, error) {
	dest := filepath.Join(dir, "mermaid-ascii")
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	asset, err := mermaidASCIIAssetName(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	url := fmt.Sprintf("%s/%s/%s", mermaidASCIIBaseURL, mermaidASCIIVersion, asset)
	archive, err := downloadToTempFile(url, dir, client)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", asset, err)
	}
	defer os.Remove(archive)

	expected, ok := mermaidASCIIChecksums[asset]
	if !ok {
		return "", fmt.Errorf("no known checksum for %s", asset)
	}
	actual, err := sha256File(archive)
	if err != nil {
		return "", err
	}
	if actual != expected {
		return "", fmt.Errorf("checksum mismatch for %s: expected %s, got %s", asset, expected, actual)
	}

	f, err := os.Open(archive)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := extractTarGz(f, dir, "mermaid-ascii"); err != nil {
		_ = os.Remove(dest)
		return "", err
	}
	return dest, nil
}

// mermaidASCIIAssetName returns the release asset for a platform.
func mermaidASCIIAssetName(goos, goarch string) (string, error) {
	var osName, archName string
	switch goos {
	case "darwin":
		osName = "Darwin"
	case "linux":
		osName = "Linux"
	default:
		return "", fmt.Errorf("mermaid-ascii: unsupported OS %q", goos)
	}
	switch goarch {
	case "amd64":
		archName = "x86_64"
	case "arm64":
		archName = "arm64"
	default:
		return "", fmt.Errorf("mermaid-ascii: unsupported architecture %q", goarch)
	}
	return fmt.Sprintf("mermaid-ascii_%s_%s.tar.gz", osName, archName), nil
}

// downloadToTempFile downloads url into a temporary file in dir and returns
// its path. The caller removes it.
func downloadToTempFile(url, dir string, client httpGetter) (string, error) {
	resp, err := client.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download returned %d", resp.StatusCode)
	}

	f, err := os.CreateTemp(dir, "download-*")
	if err != nil {
		return "", err
	}
	path := f.Name()
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// sha256File returns the hex SHA-256 digest of a file.
func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// extractTarGz extracts the regular file named target (matched by base name)
// from a tar.gz stream into dir as an executable.
func extractTarGz(r io.Reader, dir, target string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("file %q not found in archive", target)
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || filepath.Base(hdr.Name) != target {
			continue
		}

		dest := filepath.Join(dir, target)
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
		if err != nil {
			return fmt.Errorf("create %s: %w", dest, err)
		}
		if _, err := io.Copy(f, tr); err != nil { //nolint:gosec // bounded by tar header size
			f.Close()
			return fmt.Errorf("write %s: %w", dest, err)
		}
		return f.Close()
	}
}
