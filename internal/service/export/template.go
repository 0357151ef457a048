package export

import "html/template"

var page = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}}</title>
  <style>
    body {
      font-family: Arial, sans-serif;
      line-height: 1.6;
      max-width: 800px;
      margin: 0 auto;
      padding: 20px;
      background-color: #f8f9fa;
      color: #333;
    }
    h1 {
      color: #059669;
      text-align: center;
      margin-bottom: 30px;
    }
    .chat-container {
      display: flex;
      flex-direction: column;
    }
    .message {
      margin-bottom: 15px;
      max-width: 80%;
      padding: 10px 15px;
      border-radius: 10px;
    }
    .user {
      align-self: flex-end;
      background-color: #059669;
      color: white;
    }
    .assistant {
      align-self: flex-start;
      background-color: #e2e8f0;
      color: #1e293b;
    }
    .timestamp {
      font-size: 12px;
      color: #64748b;
      margin-top: 5px;
    }
    .source {
      font-size: 12px;
      font-style: italic;
      margin-top: 8px;
      color: #64748b;
    }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="chat-container">
{{- range .Messages}}
    <div class="message {{.Role}}">
      <div>{{.Body}}</div>
      <div class="timestamp">{{.Timestamp}}</div>
      {{- if .Sourced}}
      <div class="source">{{$.Source}}</div>
      {{- end}}
    </div>
{{- end}}
  </div>
</body>
</html>
`))
