// Command admission serves the multi-tenant admission API.
//
// Usage:
//
//	# Apply database migrations
//	admission migrate --config config.yaml
//
//	# Start the API
//	admission serve --config config.yaml
package main

func main() {
	Execute()
}
