// Package config loads the authflow configuration file.
//
// The file lives at ~/.config/authflow/config.yaml unless --config names
// another one. A missing file is not an error; the defaults apply.
//
//	defaultClient: example
//	clients:
//	  example:
//	    clientId: my-app
//	    baseURL: https://idp.example.com
//	    authorizationEndpoint: /oauth2/authorize
//	    accessTokenEndpoint: /oauth2/token
//	    revokeTokenEndpoint: /oauth2/revoke
//	    userInfoEndpoint: /oauth2/userinfo
//	    redirectURL: http://127.0.0.1:8765/callback
//	    scope: openid profile email
//	storage:
//	  type: file        # memory, file or redis
//	  watch: true
//	timeouts:
//	  http: 30s
//	  load: 10s
//	  login: 10m
//	logging:
//	  level: info
//	  format: text
package config
