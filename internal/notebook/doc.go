// Package notebook builds the JupyterLab server and batch execution commands
// and turns the server's startup output into access instructions.
package notebook
