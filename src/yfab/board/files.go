package board

import (
	"fmt"
	"strings"
)

// Paths of generated files, relative to the generated layer
const (
	fileLayerConf      = "conf/layer.conf"
	fileWpaConf        = "recipes-connectivity/wpa-config/files/wpa_supplicant.conf"
	fileWifiNetwork    = "recipes-connectivity/wpa-config/files/80-wifi.network"
	fileWpaService     = "recipes-connectivity/wpa-config/files/wpa-wlan0.service"
	fileWpaRecipe      = "recipes-connectivity/wpa-config/wpa-config_1.0.bb"
	fileWpaSane        = "recipes-connectivity/wpa-supplicant/files/wpa_supplicant.conf-sane"
	fileWpaAppend      = "recipes-connectivity/wpa-supplicant/wpa-supplicant_%.bbappend"
	fileWks            = "wic/" + wksName
	fileRaucSystem     = "recipes-core/rauc/files/system.conf"
	fileRaucFwEnv      = "recipes-core/rauc/files/fw_env.config"
	fileRaucRecipe     = "recipes-core/rauc/rpi-rauc-conf_1.0.bb"
	fileBundleRecipe   = "recipes-core/bundles/update-bundle.bb"
	wksName            = "sdimage-dual-raspberrypi.wks"
	layerCollection    = "yfab-board"
	mitLicenseChecksum = "file://${COMMON_LICENSE_DIR}/MIT;md5=0835ade698e0bcf8506ecda2f7b4f302"
)

// generatedFiles lists every file the Raspberry Pi provider may write
var generatedFiles = []string{
	fileLayerConf,
	fileWpaConf, fileWifiNetwork, fileWpaService, fileWpaRecipe,
	fileWpaSane, fileWpaAppend,
	fileWks, fileRaucSystem, fileRaucFwEnv, fileRaucRecipe, fileBundleRecipe,
}

func layerConf(series string) string {
	return fmt.Sprintf(`BBPATH .= ":${LAYERDIR}"
BBFILES += "${LAYERDIR}/recipes-*/*/*.bb ${LAYERDIR}/recipes-*/*/*.bbappend"
BBFILE_COLLECTIONS += "%[1]s"
BBFILE_PATTERN_%[1]s = "^${LAYERDIR}/"
BBFILE_PRIORITY_%[1]s = "10"
LAYERSERIES_COMPAT_%[1]s = "%[2]s"
`, layerCollection, series)
}

func wpaSupplicantConf(ctrlInterface, country, ssid, psk string) string {
	return fmt.Sprintf(`ctrl_interface=%s
update_config=1
country=%s

network={
    ssid="%s"
    psk="%s"
}
`, ctrlInterface, country, ssid, psk)
}

const wifiNetwork = `[Match]
Name=wlan0

[Network]
DHCP=yes

[DHCPv4]
SendHostname=yes
`

const wpaService = `[Unit]
Description=WPA Supplicant for wlan0
Before=network.target
After=dbus.service
Wants=network.target

[Service]
Type=simple
ExecStart=/usr/sbin/wpa_supplicant -i wlan0 -c /etc/wpa_supplicant/wpa_supplicant.conf
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

const wpaRecipe = `SUMMARY = "WPA Supplicant and networkd configuration for wlan0"
LICENSE = "MIT"
LIC_FILES_CHKSUM = "` + mitLicenseChecksum + `"

SRC_URI = "file://wpa_supplicant.conf \
           file://80-wifi.network \
           file://wpa-wlan0.service"

S = "${WORKDIR}"

inherit systemd

SYSTEMD_SERVICE:${PN} = "wpa-wlan0.service"
SYSTEMD_AUTO_ENABLE:${PN} = "enable"

do_install() {
    install -d ${D}${sysconfdir}/wpa_supplicant
    install -m 600 ${WORKDIR}/wpa_supplicant.conf ${D}${sysconfdir}/wpa_supplicant/wpa_supplicant.conf

    install -d ${D}${sysconfdir}/systemd/network
    install -m 644 ${WORKDIR}/80-wifi.network ${D}${sysconfdir}/systemd/network/80-wifi.network

    install -d ${D}${systemd_system_unitdir}
    install -m 644 ${WORKDIR}/wpa-wlan0.service ${D}${systemd_system_unitdir}/wpa-wlan0.service
}

FILES:${PN} += "${sysconfdir}/wpa_supplicant/wpa_supplicant.conf \
                ${sysconfdir}/systemd/network/80-wifi.network \
                ${systemd_system_unitdir}/wpa-wlan0.service"
`

const wpaAppend = `FILESEXTRAPATHS:prepend := "${THISDIR}/files:"
`

func dualSlotWks(slotSizeMB int) string {
	var b strings.Builder
	b.WriteString("part /boot --source bootimg-partition --ondisk mmcblk0 --fstype=vfat --label boot --active --align 4096 --size 100\n")
	for _, label := range []string{"rootfs_A", "rootfs_B"} {
		fmt.Fprintf(&b, "part / --source rootfs --ondisk mmcblk0 --fstype=ext4 --label %s --align 4096 --size %d\n", label, slotSizeMB)
	}
	b.WriteString("part /data --ondisk mmcblk0 --fstype=ext4 --label data --align 4096 --size 128\n")
	return b.String()
}

func raucSystemConf(machine string) string {
	return fmt.Sprintf(`[system]
compatible=%s
bootloader=u-boot
data-directory=/var/lib/rauc

[keyring]
path=development-1.cert.pem

[slot.rootfs.0]
device=/dev/mmcblk0p2
type=ext4
bootname=A

[slot.rootfs.1]
device=/dev/mmcblk0p3
type=ext4
bootname=B
`, machine)
}

const raucFwEnv = "/boot/uboot.env 0x0000 0x4000\n"

const raucRecipe = `SUMMARY = "Raspberry Pi RAUC configuration"
LICENSE = "MIT"
LIC_FILES_CHKSUM = "` + mitLicenseChecksum + `"

SRC_URI = "file://system.conf file://fw_env.config"

PROVIDES += "rauc-conf virtual/rauc-conf"
RPROVIDES:${PN} += "rauc-conf virtual-rauc-conf"

RCONFLICTS:${PN} += "rauc-conf"
RREPLACES:${PN} += "rauc-conf"

S = "${WORKDIR}"

do_install() {
    install -d ${D}${sysconfdir}/rauc
    install -m 644 ${WORKDIR}/system.conf ${D}${sysconfdir}/rauc/system.conf

    install -d ${D}${sysconfdir}
    install -m 644 ${WORKDIR}/fw_env.config ${D}${sysconfdir}/fw_env.config

    dd if=/dev/zero of=${D}/uboot.env bs=1024 count=16
}

FILES:${PN} += "${sysconfdir}/rauc/system.conf ${sysconfdir}/fw_env.config /uboot.env"
`

const bundleRecipe = `DESCRIPTION = "RAUC update bundle"
LICENSE = "MIT"
LIC_FILES_CHKSUM = "` + mitLicenseChecksum + `"

inherit bundle

RAUC_BUNDLE_COMPATIBLE = "${MACHINE}"
RAUC_BUNDLE_VERSION = "v1"
RAUC_BUNDLE_DESCRIPTION = "RAUC bundle generated by yfab"
RAUC_BUNDLE_FORMAT = "verity"

RAUC_BUNDLE_SLOTS = "rootfs"
RAUC_SLOT_rootfs = "${RAUC_TARGET_IMAGE}"
RAUC_SLOT_rootfs[fstype] = "tar.gz"

RAUC_KEY_FILE = "${RAUC_KEY_FILE_REAL}"
RAUC_CERT_FILE = "${RAUC_CERT_FILE_REAL}"
`
