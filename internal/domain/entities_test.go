package domain

import "testing"

func TestBookIsFinishedByAliasTag(t *testing.T) {
	book := Book{Status: StatusReading, Tags: []string{"sci-fi", "Finished"}}
	if !book.IsFinished() {
		t.Fatal("ожидали, что тег-алиас finished делает книгу прочитанной")
	}
	if !book.IsReading() {
		t.Fatal("ожидали, что статус reading сохраняется")
	}
}

func TestContentTagsExcludesAliases(t *testing.T) {
	book := Book{Tags: []string{"sci-fi", "finished", " reading_now ", "", "history"}}
	tags := book.ContentTags()
	if len(tags) != 2 || tags[0] != "sci-fi" || tags[1] != "history" {
		t.Fatalf("ожидали только содержательные теги, получили %v", tags)
	}
}

func TestIntentValid(t *testing.T) {
	for _, intent := range Intents {
		if !intent.Valid() {
			t.Fatalf("категория %q должна быть валидной", intent)
		}
	}
	if Intent("leisure").Valid() {
		t.Fatal("неизвестная категория не должна быть валидной")
	}
	if Intent("").Valid() {
		t.Fatal("пустая категория не должна быть валидной")
	}
}
