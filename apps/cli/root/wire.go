package root

import (
	"github.com/zenGate-Global/palmyra-projects/apps/cli/cmd/admin"
	"github.com/zenGate-Global/palmyra-projects/apps/cli/cmd/auth"
	"github.com/zenGate-Global/palmyra-projects/apps/cli/cmd/migrate"
	"github.com/zenGate-Global/palmyra-projects/apps/cli/cmd/roles"
	"github.com/zenGate-Global/palmyra-projects/apps/cli/cmd/seed"
)

func init() {
	Root().AddCommand(migrate.Command())
	Root().AddCommand(seed.Command())
	Root().AddCommand(roles.Command())
	Root().AddCommand(admin.Command())
	Root().AddCommand(auth.DevTokenCommand())
}
