// Package main Tandem signaling hub
//
//	@title			Tandem Signaling Hub API
//	@version		1.0
//	@description	Presence and call-setup hub for the Tandem pair-programming client: WebSocket signaling, LiveKit media grants and watercooler invites
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	Tandem Support
//	@contact.url	https://github.com/observer/tandem
//	@contact.email	support@tandem.example.com
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT token (format: Bearer <token>)
//
//	@externalDocs.description	OpenAPI
//	@externalDocs.url			https://swagger.io/resources/open-api/
package main
