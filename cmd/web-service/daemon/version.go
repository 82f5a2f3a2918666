package daemon

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cargodocs/cargodocs/internal/constants"
)

func (a *App) installVersion() {
	a.cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Returns the running version of " + constants.WebServiceCmdName + " and exits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("%s\t%s\n", constants.WebServiceCmdName, constants.Version)
			return nil
		},
	})
}
