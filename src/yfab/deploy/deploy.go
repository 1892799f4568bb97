// Package deploy prepares RAUC signing material and pushes update bundles
// to a running device over SSH.
package deploy

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/common/logs"
	"github.com/bitswalk/yfab/src/common/paths"
	"github.com/bitswalk/yfab/src/yfab/board"
	"github.com/bitswalk/yfab/src/yfab/process"
	"github.com/bitswalk/yfab/src/yfab/progress"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the deploy package
func SetLogger(l *logs.Logger) {
	log = l
}

// CertSubject is the subject of generated development certificates
const CertSubject = "/C=VN/ST=HCM/L=Saigon/O=yfab/CN=rpi-update"

// exitConnectionLost is the ssh status when the remote side drops the
// connection, which the reboot after an install does
const exitConnectionLost = 255

// GenerateKeys creates a self-signed RSA-4096 key and certificate in dir
// with openssl. It returns false when both files already exist.
func GenerateKeys(ctx context.Context, runner process.Runner, dir string) (bool, error) {
	dir = paths.Expand(dir)
	keyPath := filepath.Join(dir, board.RaucKeyFile)
	certPath := filepath.Join(dir, board.RaucCertFile)

	if paths.IsFile(keyPath) && paths.IsFile(certPath) {
		log.Info("RAUC keys already present", "dir", dir)
		return false, nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return false, errors.ErrConfigWrite.WithMessagef("Failed to create %s", dir).WithCause(err)
	}

	res := runner.Run(ctx, process.Command{
		Name: "openssl",
		Args: []string{
			"req", "-new", "-newkey", "rsa:4096", "-days", "3650", "-nodes", "-x509",
			"-keyout", keyPath, "-out", certPath, "-subj", CertSubject,
		},
	}, process.LogSink{Prefix: "openssl"}.Append)
	if !res.Succeeded {
		return false, errors.ErrCommandFailed.WithMessagef("openssl failed: %s", res.ErrorText)
	}

	if err := os.Chmod(keyPath, 0600); err != nil && !os.IsNotExist(err) {
		log.Warn("Failed to restrict key permissions", "path", keyPath, "error", err)
	}

	log.Info("RAUC keys generated", "key", keyPath, "cert", certPath)
	return true, nil
}

// LatestBundle returns the newest .raucb bundle in deployDir
func LatestBundle(deployDir string) (string, error) {
	found := paths.NewestMatch(nil, filepath.Join(deployDir, "*.raucb"))
	if found == "" {
		return "", errors.ErrBundleNotFound.WithMessagef("No .raucb bundle in %s, run `yfab ota bundle` first", deployDir)
	}
	return found, nil
}

// Target is the device an update is installed on
type Target struct {
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"-"`
}

// Deployer uploads bundles with scp and installs them with rauc over ssh
type Deployer struct {
	runner   process.Runner
	lookPath func(file string) (string, error)
}

// NewDeployer creates a deployer running commands through runner
func NewDeployer(runner process.Runner) *Deployer {
	return &Deployer{runner: runner, lookPath: exec.LookPath}
}

// Deploy copies bundle to /tmp on the target, installs it and reboots the
// device. The returned error is a precondition failure raised before any
// command runs.
func (d *Deployer) Deploy(ctx context.Context, bundle string, target Target, sink process.Sink) (process.Result, error) {
	if sink == nil {
		sink = process.Discard
	}
	if _, err := d.lookPath("sshpass"); err != nil {
		return process.Result{}, errors.ErrToolMissing.WithMessage("sshpass is required to deploy, install it with your package manager")
	}
	if !paths.IsFile(bundle) {
		return process.Result{}, errors.ErrBundleNotFound.WithMessagef("Bundle %q not found", bundle)
	}
	if target.Host == "" {
		return process.Result{}, errors.ErrInvalidSetting.WithMessage("No target host, set raspberrypi ota.target_host")
	}
	if target.User == "" {
		target.User = "root"
	}

	name := filepath.Base(bundle)
	remotePath := "/tmp/" + name
	login := target.User + "@" + target.Host
	env := map[string]string{"SSHPASS": target.Password}
	sshOpts := []string{"-o", "StrictHostKeyChecking=no", "-o", "UserKnownHostsFile=/dev/null"}

	sink.Append(fmt.Sprintf("Uploading %s to %s", name, login))
	log.Info("Uploading bundle", "bundle", name, "target", login)

	scpArgs := append([]string{"-e", "scp"}, sshOpts...)
	scpArgs = append(scpArgs, bundle, login+":"+remotePath)
	res := d.runner.Run(ctx, process.Command{Name: "sshpass", Args: scpArgs, Env: env},
		process.Monitor(progress.Percent(), sink))
	if !res.Succeeded {
		log.Error("Bundle upload failed", "target", login, "error", res.ErrorText)
		return res, nil
	}
	sink.Progress(50)

	sink.Append("Installing update and rebooting")
	sshArgs := append([]string{"-e", "ssh"}, sshOpts...)
	sshArgs = append(sshArgs, login, "rauc install "+remotePath+" && reboot")
	res = d.runner.Run(ctx, process.Command{Name: "sshpass", Args: sshArgs, Env: env}, sink.Append)

	if !res.Succeeded && res.ExitCode == exitConnectionLost {
		log.Warn("Connection closed during install, the device is likely rebooting", "target", login)
		sink.Append("Warning: connection closed, the device is rebooting")
		res = process.Result{Succeeded: true}
	}
	if !res.Succeeded {
		log.Error("Bundle install failed", "target", login, "error", res.ErrorText)
		return res, nil
	}

	sink.Progress(100)
	log.Info("Update installed", "target", login)
	return res, nil
}
