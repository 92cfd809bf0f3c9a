// Package docuquery embeds the document Q&A pipeline in a Go program:
// ingest documents into user-scoped or shared vector collections, search
// them by similarity, and chat with an LLM grounded in the retrieved chunks.
//
// The same pipeline the HTTP server exposes is available in-process:
//
//	client, _ := docuquery.New(
//	    docuquery.WithMemoryStore(""),
//	    docuquery.WithOpenAI(os.Getenv("OPENAI_API_KEY")),
//	)
//	defer client.Close()
//
//	f, _ := os.Open("manual.pdf")
//	report, _ := client.Ingest(ctx, docuquery.IngestRequest{
//	    UserID: "u1",
//	    Files:  []docuquery.UploadFile{{Name: "manual.pdf", Data: f}},
//	})
//
//	answer, _ := client.Chat(ctx, docuquery.ChatRequest{
//	    UserID:   "u1",
//	    Question: "How do I reset the device?",
//	})
//
// Production deployments point the client at Redis/Valkey, pgvector or
// Milvus with the corresponding With* option; the embedded store keeps
// everything in process memory and is meant for tests and small tools.
package docuquery
