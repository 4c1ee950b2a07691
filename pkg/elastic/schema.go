package elastic

// indexSchema defines the unified search index: an edge-n-gram analyzer for
// autocomplete on the title field, keyword fields for exact identifier and
// ownership matching, and text fields analyzed at index time (the mapper
// never lowercases; the standard analyzer owns that).
var indexSchema = []byte(`{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "tokenizer": {
        "autocomplete_tokenizer": {
          "type": "edge_ngram",
          "min_gram": 2,
          "max_gram": 20,
          "token_chars": ["letter", "digit"]
        }
      },
      "analyzer": {
        "autocomplete_analyzer": {
          "type": "custom",
          "tokenizer": "autocomplete_tokenizer",
          "filter": ["lowercase"]
        },
        "autocomplete_search_analyzer": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "entity_type": {"type": "keyword"},
      "entity_id": {"type": "keyword"},
      "title": {
        "type": "text",
        "analyzer": "standard",
        "fields": {
          "autocomplete": {
            "type": "text",
            "analyzer": "autocomplete_analyzer",
            "search_analyzer": "autocomplete_search_analyzer"
          },
          "keyword": {"type": "keyword", "ignore_above": 256}
        }
      },
      "description": {"type": "text", "analyzer": "standard"},
      "keywords": {"type": "keyword"},
      "seller_id": {"type": "keyword"},
      "buyer_id": {"type": "keyword"},
      "carrier_id": {"type": "keyword"},
      "vin": {"type": "keyword"},
      "make": {"type": "text"},
      "model": {"type": "text"},
      "year": {"type": "integer"},
      "amount": {"type": "double"},
      "status": {"type": "keyword"},
      "location": {"type": "text"},
      "city": {"type": "keyword"},
      "state": {"type": "keyword"},
      "country": {"type": "keyword"},
      "created_at": {"type": "date"},
      "updated_at": {"type": "date"},
      "indexed_at": {"type": "date"}
    }
  }
}`)
