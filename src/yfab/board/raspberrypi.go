package board

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/common/paths"
	"github.com/bitswalk/yfab/src/yfab/conf"
	"github.com/bitswalk/yfab/src/yfab/layers"
	"github.com/bitswalk/yfab/src/yfab/session"
)

// RAUC signing material file names inside the keys directory
const (
	RaucKeyFile  = "development-1.key.pem"
	RaucCertFile = "development-1.cert.pem"
)

var (
	metaOpenEmbedded = layers.Requirement{Name: "meta-openembedded", URL: "https://git.openembedded.org/meta-openembedded"}
	metaRaspberryPi  = layers.Requirement{Name: "meta-raspberrypi", URL: "https://git.yoctoproject.org/meta-raspberrypi"}
	metaRauc         = layers.Requirement{Name: "meta-rauc", URL: "https://github.com/rauc/meta-rauc", Branch: "scarthgap"}
)

// RPiSettings are the persisted Raspberry Pi options
type RPiSettings struct {
	Hostname          string      `json:"hostname"`
	Username          string      `json:"username"`
	Password          string      `json:"password"`
	USBGadget         bool        `json:"usb_gadget"`
	UART              bool        `json:"uart"`
	LicenseCommercial bool        `json:"license_commercial"`
	PersistentLogs    bool        `json:"persistent_logs"`
	WiFi              bool        `json:"wifi"`
	WiFiSSID          string      `json:"wifi_ssid"`
	WiFiPassword      string      `json:"wifi_password"`
	Country           string      `json:"country"`
	OTA               OTASettings `json:"ota"`
}

// OTASettings configure RAUC A/B updates and the deploy target
type OTASettings struct {
	Enabled        bool   `json:"enabled"`
	SlotSizeMB     int    `json:"slot_size_mb"`
	TargetHost     string `json:"target_host"`
	TargetUser     string `json:"target_user"`
	TargetPassword string `json:"target_password"`
}

// DefaultRPiSettings returns the settings of a fresh session
func DefaultRPiSettings() RPiSettings {
	return RPiSettings{
		Hostname:          "raspberrypi-yocto",
		Username:          "root",
		Password:          "root",
		UART:              true,
		LicenseCommercial: true,
		PersistentLogs:    true,
		Country:           "VN",
		OTA: OTASettings{
			SlotSizeMB: 1024,
			TargetUser: "root",
		},
	}
}

// RaspberryPi is the provider for the raspberrypi* machines of
// meta-raspberrypi, including optional RAUC A/B updates.
type RaspberryPi struct {
	env      *Env
	Settings RPiSettings
}

var (
	_ Provider      = (*RaspberryPi)(nil)
	_ LegacyCleaner = (*RaspberryPi)(nil)
	_ Configurable  = (*RaspberryPi)(nil)
)

// NewRaspberryPi creates the provider with default settings
func NewRaspberryPi(env *Env) *RaspberryPi {
	return &RaspberryPi{env: env, Settings: DefaultRPiSettings()}
}

func (r *RaspberryPi) Name() string {
	return "raspberrypi"
}

func (r *RaspberryPi) IsSupported(machine string) bool {
	return strings.HasPrefix(machine, "raspberrypi")
}

func (r *RaspberryPi) RequiredLayers() []layers.Requirement {
	reqs := []layers.Requirement{metaOpenEmbedded, metaRaspberryPi}
	if r.Settings.OTA.Enabled {
		reqs = append(reqs, metaRauc)
	}
	return reqs
}

func (r *RaspberryPi) LayerRegistrationLines() []string {
	lines := []string{
		`BBLAYERS += "${TOPDIR}/../meta-openembedded/meta-oe"`,
		`BBLAYERS += "${TOPDIR}/../meta-openembedded/meta-networking"`,
		`BBLAYERS += "${TOPDIR}/../meta-raspberrypi"`,
	}
	if r.generatesFiles() {
		lines = append(lines, `BBLAYERS += "${TOPDIR}/../`+GeneratedLayer+`"`)
	}
	if r.Settings.OTA.Enabled {
		lines = append(lines, `BBLAYERS += "${TOPDIR}/../meta-rauc"`)
	}
	return lines
}

func (r *RaspberryPi) generatesFiles() bool {
	return r.Settings.WiFi || r.Settings.OTA.Enabled
}

// GeneratedDirectives renders the board block and regenerates the files of
// the generated layer.
func (r *RaspberryPi) GeneratedDirectives() ([]conf.Directive, error) {
	s := r.Settings
	var ds []conf.Directive
	add := func(key, format string, args ...interface{}) {
		ds = append(ds, conf.D(key, fmt.Sprintf(format, args...)))
	}

	if h := strings.TrimSpace(s.Hostname); h != "" {
		add("hostname:pn-base-files", `hostname:pn-base-files = "%s"`, h)
		add("ROOTFS_POSTPROCESS_COMMAND",
			`ROOTFS_POSTPROCESS_COMMAND += "echo %[1]s > ${IMAGE_ROOTFS}/etc/hostname; echo 127.0.0.1 localhost > ${IMAGE_ROOTFS}/etc/hosts; echo 127.0.1.1 %[1]s >> ${IMAGE_ROOTFS}/etc/hosts;"`, h)
	}

	if u := strings.TrimSpace(s.Username); u != "" && u != "root" {
		pw := strings.TrimSpace(s.Password)
		if pw == "" {
			pw = "root"
		}
		add("INHERIT", `INHERIT += "extrausers"`)
		add("EXTRA_USERS_PARAMS", `EXTRA_USERS_PARAMS += "useradd -P '%s' -G sudo,video,render,input,shutdown,disk %s;"`, pw, u)
	}

	add("ENABLE_UART", `ENABLE_UART = "%s"`, boolFlag(s.UART))

	if s.LicenseCommercial {
		add("LICENSE_FLAGS_ACCEPTED", `LICENSE_FLAGS_ACCEPTED:append = " commercial synaptics-killswitch"`)
	}

	if s.USBGadget {
		add("RPI_EXTRA_CONFIG", `RPI_EXTRA_CONFIG:append = "dtoverlay=dwc2"`)
		add("KERNEL_MODULE_AUTOLOAD", `KERNEL_MODULE_AUTOLOAD += "dwc2 g_ether"`)
		add("IMAGE_INSTALL", `IMAGE_INSTALL:append = " kernel-module-dwc2 kernel-module-g-ether"`)
	}

	if s.PersistentLogs {
		add("VOLATILE_LOG_DIR", `VOLATILE_LOG_DIR = "no"`)
	}

	files := fileSet{}

	if s.WiFi {
		ds = append(ds, r.wifi(files)...)
	}
	if s.OTA.Enabled {
		ds = append(ds, r.ota(files)...)
	}
	if len(files) > 0 {
		files[fileLayerConf] = layerConf(r.series())
	}

	if err := r.writeFiles(files); err != nil {
		return nil, err
	}
	return ds, nil
}

func (r *RaspberryPi) wifi(files fileSet) []conf.Directive {
	s := r.Settings
	country := s.Country
	if country == "" {
		country = "VN"
	}

	if r.env.WifiStack == WifiMinimal {
		files[fileWpaSane] = wpaSupplicantConf("/var/run/wpa_supplicant", country, s.WiFiSSID, s.WiFiPassword)
		files[fileWpaAppend] = wpaAppend
		return []conf.Directive{
			conf.D("DISTRO_FEATURES", `DISTRO_FEATURES:append = " wifi"`),
			conf.D("IMAGE_INSTALL", `IMAGE_INSTALL:append = " wpa-supplicant iw linux-firmware-rpidistro-bcm43430 kernel-module-brcmfmac"`),
		}
	}

	files[fileWpaConf] = wpaSupplicantConf("/run/wpa_supplicant", country, s.WiFiSSID, s.WiFiPassword)
	files[fileWifiNetwork] = wifiNetwork
	files[fileWpaService] = wpaService
	files[fileWpaRecipe] = wpaRecipe

	return []conf.Directive{
		conf.D("DISTRO_FEATURES", `DISTRO_FEATURES:append = " systemd wifi usrmerge"`),
		conf.D("VIRTUAL-RUNTIME_init_manager", `VIRTUAL-RUNTIME_init_manager = "systemd"`),
		conf.D("DISTRO_FEATURES_BACKFILL_CONSIDERED", `DISTRO_FEATURES_BACKFILL_CONSIDERED = "sysvinit"`),
		conf.D("VIRTUAL-RUNTIME_initscripts", `VIRTUAL-RUNTIME_initscripts = "systemd-compat-units"`),
		conf.D("IMAGE_INSTALL", `IMAGE_INSTALL:append = " wpa-supplicant iw linux-firmware-rpidistro-bcm43430 kernel-module-brcmfmac kernel-module-brcmfmac-wcc wpa-config wireless-regdb-static avahi-daemon"`),
		conf.D("KERNEL_MODULE_AUTOLOAD", `KERNEL_MODULE_AUTOLOAD:append = " brcmfmac-wcc"`),
		conf.D("CMDLINE", `CMDLINE:append = " brcmfmac.feature_disable=0x200000"`),
	}
}

func (r *RaspberryPi) ota(files fileSet) []conf.Directive {
	slot := r.Settings.OTA.SlotSizeMB
	if slot <= 0 {
		slot = 1024
	}
	machine, image := "", ""
	if r.env.Session != nil {
		machine, image = r.env.Session.Machine, r.env.Session.Image
	}

	files[fileWks] = dualSlotWks(slot)
	files[fileRaucSystem] = raucSystemConf(machine)
	files[fileRaucFwEnv] = raucFwEnv
	files[fileRaucRecipe] = raucRecipe
	files[fileBundleRecipe] = bundleRecipe

	keyPath := filepath.Join(r.env.KeysDir, RaucKeyFile)
	certPath := filepath.Join(r.env.KeysDir, RaucCertFile)
	if !paths.IsFile(keyPath) {
		log.Warn("RAUC signing key not found, run `yfab ota keys`", "path", keyPath)
	}

	return []conf.Directive{
		conf.D("RPI_USE_U_BOOT", `RPI_USE_U_BOOT = "1"`),
		conf.D("PREFERRED_PROVIDER_virtual/bootloader", `PREFERRED_PROVIDER_virtual/bootloader = "u-boot"`),
		conf.D("DEPENDS", `DEPENDS:append:pn-rauc = " libubootenv"`),
		conf.D("PREFERRED_PROVIDER_rauc-conf", `PREFERRED_PROVIDER_rauc-conf = "rpi-rauc-conf"`),
		conf.D("PREFERRED_PROVIDER_virtual/rauc-conf", `PREFERRED_PROVIDER_virtual/rauc-conf = "rpi-rauc-conf"`),
		conf.D("BBMASK", `BBMASK += "meta-rauc/recipes-core/rauc/rauc-conf.bb"`),
		conf.D("PACKAGECONFIG", `PACKAGECONFIG:append:pn-rauc = " uboot"`),
		conf.D("DISTRO_FEATURES", `DISTRO_FEATURES:append = " rauc"`),
		conf.D("IMAGE_INSTALL", `IMAGE_INSTALL:append = " rauc rpi-rauc-conf libubootenv-bin"`),
		conf.D("WKS_FILE", fmt.Sprintf(`WKS_FILE = "%s"`, wksName)),
		conf.D("RAUC_KEY_FILE_REAL", fmt.Sprintf(`RAUC_KEY_FILE_REAL = "%s"`, keyPath)),
		conf.D("RAUC_CERT_FILE_REAL", fmt.Sprintf(`RAUC_CERT_FILE_REAL = "%s"`, certPath)),
		conf.D("RAUC_KEYRING_FILE", fmt.Sprintf(`RAUC_KEYRING_FILE = "%s"`, certPath)),
		conf.D("RAUC_TARGET_IMAGE", fmt.Sprintf(`RAUC_TARGET_IMAGE = "%s"`, image)),
		conf.D("IMAGE_FSTYPES", `IMAGE_FSTYPES:append = " wic.bz2"`),
		conf.D("IMAGE_FSTYPES", `IMAGE_FSTYPES:append = " tar.gz"`),
		conf.D("SYSTEMD_AUTO_ENABLE", `SYSTEMD_AUTO_ENABLE:pn-systemd-growfs = "disable"`),
		conf.D("IMAGE_FEATURES", `IMAGE_FEATURES:remove = "read-only-rootfs"`),
	}
}

func (r *RaspberryPi) series() string {
	if r.env.Series != "" {
		return r.env.Series
	}
	return layers.DefaultBranch
}

func (r *RaspberryPi) writeFiles(files fileSet) error {
	if r.env.DryRun {
		return nil
	}
	if r.env.PokyDir == "" {
		if len(files) == 0 {
			return nil
		}
		return errors.ErrPokyPathUnset.WithMessage("Poky path is required to generate board files")
	}
	return files.sync(r.env.LayerDir(), generatedFiles)
}

// LegacyCleanup matches the standalone lines earlier versions wrote
func (r *RaspberryPi) LegacyCleanup() []conf.Predicate {
	return []conf.Predicate{
		conf.Contains("RPI_EXTRA_CONFIG", "dtoverlay=dwc2"),
		conf.Contains("KERNEL_MODULE_AUTOLOAD", "dwc2 g_ether"),
		conf.Contains("WIFI_SSID"),
		conf.Contains("WIFI_PASSWORD"),
		conf.Contains("LICENSE_FLAGS_ACCEPTED", "synaptics-killswitch"),
		conf.Contains("ENABLE_UART"),
		conf.Contains("IMAGE_INSTALL", "kernel-module-dwc2"),
		conf.Contains("IMAGE_INSTALL", "wpa-supplicant", "rpidistro-bcm43430"),
	}
}

// SerializeState encodes the settings with secrets sealed
func (r *RaspberryPi) SerializeState() (json.RawMessage, error) {
	s := r.Settings
	var err error
	for _, secret := range []*string{&s.Password, &s.WiFiPassword, &s.OTA.TargetPassword} {
		if *secret, err = r.env.seal(*secret); err != nil {
			return nil, fmt.Errorf("failed to seal secret: %w", err)
		}
	}
	return json.Marshal(s)
}

// DeserializeState restores settings, keeping defaults for absent fields
func (r *RaspberryPi) DeserializeState(raw json.RawMessage) error {
	s := DefaultRPiSettings()
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	var err error
	for _, secret := range []*string{&s.Password, &s.WiFiPassword, &s.OTA.TargetPassword} {
		if *secret, err = r.env.open(*secret); err != nil {
			return fmt.Errorf("failed to open secret: %w", err)
		}
	}
	if err := s.validate(); err != nil {
		return err
	}
	r.Settings = s
	return nil
}

// validate applies the checks of Set to settings read from a session file
func (s RPiSettings) validate() error {
	if s.Hostname != "" && !hostnamePattern.MatchString(s.Hostname) {
		return errors.ErrInvalidSetting.WithMessagef("invalid hostname %q in session", s.Hostname)
	}
	if s.Username != "" && !usernamePattern.MatchString(s.Username) {
		return errors.ErrInvalidSetting.WithMessagef("invalid username %q in session", s.Username)
	}
	quoted := map[string]string{
		"password":      s.Password,
		"wifi_ssid":     s.WiFiSSID,
		"wifi_password": s.WiFiPassword,
		"country":       s.Country,
	}
	for key, value := range quoted {
		if err := checkQuoted(key, value); err != nil {
			return err
		}
	}
	if s.OTA.SlotSizeMB <= 0 {
		return errors.ErrInvalidSetting.WithMessagef("ota.slot_size_mb must be a positive integer, got %d", s.OTA.SlotSizeMB)
	}
	return nil
}

var (
	hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]{0,62}$`)
	usernamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)
)

// Set changes one provider setting
func (r *RaspberryPi) Set(key, value string) error {
	s := &r.Settings
	switch key {
	case "hostname":
		if value != "" && !hostnamePattern.MatchString(value) {
			return errors.ErrInvalidSetting.WithMessagef("invalid hostname %q", value)
		}
		s.Hostname = value
	case "username":
		if value != "" && !usernamePattern.MatchString(value) {
			return errors.ErrInvalidSetting.WithMessagef("invalid username %q", value)
		}
		s.Username = value
	case "password":
		return setQuoted(&s.Password, key, value)
	case "usb_gadget":
		return setBool(&s.USBGadget, key, value)
	case "uart":
		return setBool(&s.UART, key, value)
	case "license_commercial":
		return setBool(&s.LicenseCommercial, key, value)
	case "persistent_logs":
		return setBool(&s.PersistentLogs, key, value)
	case "wifi":
		return setBool(&s.WiFi, key, value)
	case "wifi_ssid":
		return setQuoted(&s.WiFiSSID, key, value)
	case "wifi_password":
		return setQuoted(&s.WiFiPassword, key, value)
	case "country":
		if len(value) != 2 {
			return errors.ErrInvalidSetting.WithMessagef("country must be a two-letter code, got %q", value)
		}
		s.Country = strings.ToUpper(value)
	case "ota.enabled":
		return setBool(&s.OTA.Enabled, key, value)
	case "ota.slot_size_mb":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return errors.ErrInvalidSetting.WithMessagef("%s must be a positive integer, got %q", key, value)
		}
		s.OTA.SlotSizeMB = n
	case "ota.target_host":
		s.OTA.TargetHost = value
	case "ota.target_user":
		s.OTA.TargetUser = value
	case "ota.target_password":
		s.OTA.TargetPassword = value
	default:
		return errors.ErrInvalidSetting.WithMessagef("unknown %s setting %q", r.Name(), key)
	}
	return nil
}

// Fields lists the provider settings with secrets masked
func (r *RaspberryPi) Fields() []session.Field {
	s := r.Settings
	return []session.Field{
		{Key: "hostname", Value: s.Hostname},
		{Key: "username", Value: s.Username},
		{Key: "password", Value: mask(s.Password)},
		{Key: "usb_gadget", Value: strconv.FormatBool(s.USBGadget)},
		{Key: "uart", Value: strconv.FormatBool(s.UART)},
		{Key: "license_commercial", Value: strconv.FormatBool(s.LicenseCommercial)},
		{Key: "persistent_logs", Value: strconv.FormatBool(s.PersistentLogs)},
		{Key: "wifi", Value: strconv.FormatBool(s.WiFi)},
		{Key: "wifi_ssid", Value: s.WiFiSSID},
		{Key: "wifi_password", Value: mask(s.WiFiPassword)},
		{Key: "country", Value: s.Country},
		{Key: "ota.enabled", Value: strconv.FormatBool(s.OTA.Enabled)},
		{Key: "ota.slot_size_mb", Value: strconv.Itoa(s.OTA.SlotSizeMB)},
		{Key: "ota.target_host", Value: s.OTA.TargetHost},
		{Key: "ota.target_user", Value: s.OTA.TargetUser},
		{Key: "ota.target_password", Value: mask(s.OTA.TargetPassword)},
	}
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func setBool(dst *bool, key, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return errors.ErrInvalidSetting.WithMessagef("%s must be true or false, got %q", key, value)
	}
	*dst = b
	return nil
}

// setQuoted rejects values that would break out of the quoting of the
// generated directives and configuration files.
func setQuoted(dst *string, key, value string) error {
	if err := checkQuoted(key, value); err != nil {
		return err
	}
	*dst = value
	return nil
}

func checkQuoted(key, value string) error {
	if strings.ContainsAny(value, "\"'\n\r\\") {
		return errors.ErrInvalidSetting.WithMessagef("%s must not contain quotes, backslashes or newlines", key)
	}
	return nil
}
