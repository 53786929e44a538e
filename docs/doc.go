// Package docs provides generated OpenAPI documentation.
//
// Caselight API
//
//	@title			Caselight API
//	@version		1.0
//	@description	Case-isolated discovery document processing, hybrid retrieval, and fact management.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/caselight/caselight
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/caselight/serve.go -o ./swagger --parseDependency --parseInternal
