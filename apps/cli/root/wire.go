package root

import (
	"github.com/zenGate-Global/palmyra-agri-admin/apps/cli/cmd/admin"
	"github.com/zenGate-Global/palmyra-agri-admin/apps/cli/cmd/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/apps/cli/cmd/bootstrap"
	schemacmd "github.com/zenGate-Global/palmyra-agri-admin/apps/cli/cmd/schema"
	tenantcmd "github.com/zenGate-Global/palmyra-agri-admin/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(bootstrap.Command())
	Root().AddCommand(tenantcmd.Command())
	Root().AddCommand(admin.Command())
	Root().AddCommand(schemacmd.Command())
}
