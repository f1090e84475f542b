// Package proxy is the HTTP front end of sumctl. It splits a multi-digit addition
// into one call per digit position, each served by its own unit, and streams the
// operational log to the browser terminal.
package proxy
