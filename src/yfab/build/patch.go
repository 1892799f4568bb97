package build

import (
	"fmt"
	"strings"

	"github.com/bitswalk/yfab/src/yfab/board"
	"github.com/bitswalk/yfab/src/yfab/conf"
	"github.com/bitswalk/yfab/src/yfab/session"
)

// BasePatch assembles the local.conf patch for a session: the pinned
// MACHINE and PACKAGE_CLASSES assignments, the init and image feature
// directives, then the provider's directives. cleanup removes legacy
// standalone lines from the user-owned content.
func BasePatch(s *session.State, p board.Provider, cleanup []conf.Predicate) (conf.Patch, error) {
	patch := conf.Patch{
		Pinned: []conf.Directive{
			conf.D("MACHINE", fmt.Sprintf(`MACHINE ??= "%s"`, s.Machine)),
			conf.D("PACKAGE_CLASSES", fmt.Sprintf(`PACKAGE_CLASSES ?= "%s"`, s.PackageFormat)),
		},
		Cleanup: cleanup,
	}

	if s.InitSystem == session.InitSystemd {
		patch.Directives = append(patch.Directives,
			conf.D("DISTRO_FEATURES", `DISTRO_FEATURES:append = " systemd"`),
			conf.D("VIRTUAL-RUNTIME_init_manager", `VIRTUAL-RUNTIME_init_manager = "systemd"`),
		)
	}

	if features := s.Features.List(); len(features) > 0 {
		patch.Directives = append(patch.Directives, conf.D("EXTRA_IMAGE_FEATURES",
			fmt.Sprintf(`EXTRA_IMAGE_FEATURES ?= "%s"`, strings.Join(features, " "))))
	}

	if p != nil {
		ds, err := p.GeneratedDirectives()
		if err != nil {
			return conf.Patch{}, err
		}
		patch.Directives = append(patch.Directives, ds...)
	}

	return patch, nil
}
