// Command flycored runs the FlyCode policy-enforcement daemon: a local MCP
// server mediating filesystem and process access for connected AI agent
// clients.
package main

func main() {
	Execute()
}
