package notebook

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/smazurov/floability/internal/session"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	urlStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cmdStyle    = lipgloss.NewStyle().Bold(true)
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
)

// Access is what a user needs to reach the notebook server.
type Access struct {
	Port    int
	Token   string
	Host    session.HostInfo
	LogPath string
}

func (a Access) port() string {
	if a.Port <= 0 {
		return "N/A"
	}
	return strconv.Itoa(a.Port)
}

func (a Access) token() string {
	if a.Token == "" {
		return "N/A"
	}
	return a.Token
}

// LocalURL is the address to open through an SSH tunnel or on the same host.
func (a Access) LocalURL() string {
	return fmt.Sprintf("http://localhost:%s/lab/?token=%s", a.port(), a.token())
}

// RemoteURL is the direct address on the session host.
func (a Access) RemoteURL() string {
	return fmt.Sprintf("http://%s:%s/lab/?token=%s", a.Host.IP, a.port(), a.token())
}

// TunnelCommand forwards the notebook port from the session host.
func (a Access) TunnelCommand() string {
	p := a.port()
	return fmt.Sprintf("ssh -L localhost:%s:localhost:%s %s@%s", p, p, a.Host.User, a.Host.IP)
}

// RenderBanner formats the access instructions printed once the server is up.
func RenderBanner(a Access) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("JupyterLab is running on port %s on %s", a.port(), a.Host.IP)))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s  %s\n", labelStyle.Render("local: "), urlStyle.Render(a.LocalURL()))
	fmt.Fprintf(&b, "%s  %s\n", labelStyle.Render("remote:"), urlStyle.Render(a.RemoteURL()))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("If the port is not reachable directly, open an SSH tunnel:"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  %s\n", cmdStyle.Render(a.TunnelCommand()))
	b.WriteString(labelStyle.Render("then browse to"))
	fmt.Fprintf(&b, " %s", urlStyle.Render(a.LocalURL()))
	if a.LogPath != "" {
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "%s %s", labelStyle.Render("Full JupyterLab log:"), a.LogPath)
	}

	return boxStyle.Render(b.String())
}
