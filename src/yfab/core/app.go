package core

import (
	"os"

	"github.com/bitswalk/yfab/src/common/cli"
	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/common/logs"
	"github.com/bitswalk/yfab/src/common/paths"
	"github.com/bitswalk/yfab/src/yfab/api"
	"github.com/bitswalk/yfab/src/yfab/board"
	"github.com/bitswalk/yfab/src/yfab/build"
	"github.com/bitswalk/yfab/src/yfab/conf"
	"github.com/bitswalk/yfab/src/yfab/db"
	"github.com/bitswalk/yfab/src/yfab/deploy"
	"github.com/bitswalk/yfab/src/yfab/flash"
	"github.com/bitswalk/yfab/src/yfab/layers"
	"github.com/bitswalk/yfab/src/yfab/operation"
	"github.com/bitswalk/yfab/src/yfab/output"
	"github.com/bitswalk/yfab/src/yfab/poky"
	"github.com/bitswalk/yfab/src/yfab/process"
	"github.com/bitswalk/yfab/src/yfab/security"
	"github.com/bitswalk/yfab/src/yfab/session"
	"github.com/bitswalk/yfab/src/yfab/storage"
	"github.com/bitswalk/yfab/src/yfab/workspace"
	"github.com/spf13/viper"
)

// newRunner creates the runner for external commands. Tests replace it.
var newRunner = func() process.Runner {
	return process.NewExecRunner()
}

func setPackageLoggers(l *logs.Logger) {
	api.SetLogger(l)
	board.SetLogger(l)
	build.SetLogger(l)
	conf.SetLogger(l)
	db.SetLogger(l)
	deploy.SetLogger(l)
	flash.SetLogger(l)
	layers.SetLogger(l)
	operation.SetLogger(l)
	poky.SetLogger(l)
	process.SetLogger(l)
	session.SetLogger(l)
	storage.SetLogger(l)
	workspace.SetLogger(l)
}

// app holds what a command needs. Close persists the database.
type app struct {
	database   *db.Database
	history    *db.OperationRepository
	runner     process.Runner
	controller *operation.Controller
	workspace  *workspace.Workspace
}

// openDatabase loads the settings and history database
func openDatabase() (*db.Database, error) {
	database, err := db.New(db.Config{
		PersistPath: cli.GetExpandedString("database.path"),
		LoadOnStart: true,
	})
	if err != nil {
		return nil, errors.ErrDatabaseQuery.WithMessage("Failed to open the yfab database").WithCause(err)
	}
	return database, nil
}

// newApp opens the database and, when withTree is set, the poky build tree
func newApp(withTree bool) (*app, error) {
	database, err := openDatabase()
	if err != nil {
		return nil, err
	}

	history := db.NewOperationRepository(database)
	a := &app{
		database:   database,
		history:    history,
		runner:     newRunner(),
		controller: operation.NewController(workspace.NewHistoryRecorder(history)),
	}
	if !withTree {
		return a, nil
	}

	ws, err := a.openWorkspace()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.workspace = ws
	return a, nil
}

// pokyPath returns the configured poky path, or the one remembered in the
// database
func (a *app) pokyPath() (string, error) {
	if p := cli.GetExpandedString("poky.path"); p != "" {
		return p, nil
	}
	p, err := a.database.GetSetting(db.SettingPokyPath)
	if err != nil || p == "" {
		return "", errors.ErrPokyPathUnset
	}
	return p, nil
}

func (a *app) openWorkspace() (*workspace.Workspace, error) {
	pokyDir, err := a.pokyPath()
	if err != nil {
		return nil, err
	}
	if !paths.IsDir(pokyDir) {
		return nil, errors.ErrBuildTreeMissing.WithMessagef("Poky checkout %s does not exist", pokyDir)
	}

	wifi, err := board.ParseWifiStack(viper.GetString("board.wifi_stack"))
	if err != nil {
		return nil, err
	}

	var sealer board.Sealer
	if keyPath := cli.GetExpandedString("security.master_key_path"); keyPath != "" {
		sm, err := security.NewSecretManager(keyPath)
		if err != nil {
			log.Warn("Secrets will be stored unsealed", "error", err)
		} else {
			sealer = sm
		}
	}

	return workspace.New(workspace.Config{
		Tree: build.Tree{
			PokyDir:  pokyDir,
			BuildDir: viper.GetString("poky.build_dir"),
		},
		RunAs:         viper.GetString("build.run_as"),
		DefaultBranch: viper.GetString("poky.default_branch"),
		WifiStack:     wifi,
		KeysDir:       cli.GetExpandedString("ota.keys_dir"),
		Flash: flash.Config{
			BlockSize: viper.GetString("flash.block_size"),
			Sudo:      viper.GetBool("flash.sudo"),
		},
		Sealer: sealer,
	}, a.runner), nil
}

// run triggers fn and renders its events on stdout until it finishes
func (a *app) run(kind operation.Kind, target string, fn operation.Func) error {
	id, ok := a.controller.Trigger(kind, target, fn)
	if !ok {
		return errors.ErrBusy
	}

	res := output.NewRenderer(os.Stdout).Follow(a.controller.Events(), id)
	if !res.Succeeded {
		return errors.ErrCommandFailed.WithMessagef("%s %s failed", kind, target)
	}
	return nil
}

// Close waits for running operations and persists the database
func (a *app) Close() {
	a.controller.Close()
	for range a.controller.Events() {
	}
	if err := a.database.Shutdown(); err != nil {
		log.Error("Failed to persist database", "error", err)
	}
}

// storageConfig builds the artifact storage configuration. An S3 endpoint
// selects the S3 backend regardless of storage.type.
func storageConfig() storage.Config {
	storageType := viper.GetString("storage.type")
	endpoint := viper.GetString("storage.s3.endpoint")
	if endpoint != "" {
		storageType = "s3"
	}

	return storage.Config{
		Type: storageType,
		Local: storage.LocalConfig{
			BasePath: cli.GetExpandedString("storage.local.path"),
		},
		S3: storage.S3Config{
			Endpoint:        endpoint,
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          viper.GetString("storage.s3.bucket"),
			AccessKeyID:     viper.GetString("storage.s3.access_key"),
			SecretAccessKey: viper.GetString("storage.s3.secret_key"),
			UsePathStyle:    viper.GetBool("storage.s3.path_style"),
			AppID:           VersionInfo.AppID(),
		},
	}
}
